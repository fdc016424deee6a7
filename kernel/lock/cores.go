//go:build !kestrel_unicore

package lock

// MaxCores is the number of logical cores this build can drive.
const MaxCores = 64
