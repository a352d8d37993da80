// Package workflow orchestrates a mastering session end to end: probing
// sources, planning discs, staging disc images concurrently, and burning
// them strictly in disc order on a single exclusive device. Staging
// failures stay contained to their disc; burn failures restage and retry up
// to the configured bound. Cancellation is cooperative and never interrupts
// a disc that has already started writing.
package workflow
