// Package services holds shared service plumbing: the error taxonomy used to
// classify pipeline failures and context annotations that flow through every
// stage for log correlation.
package services
