// Package util contains any functions used across the application that don't match
// any other package
package util

import "os"

// IsRunningInDocker checks for the /.dockerenv file which only exists
// inside of docker containers
func IsRunningInDocker() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}
