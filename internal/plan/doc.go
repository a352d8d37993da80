// Package plan partitions an ordered track list across the minimum number of
// discs a first-fit in-order walk allows, charging disc-mode gap overhead and
// refusing tracks that cannot fit on a disc at all.
package plan
