package main

import (
	"fmt"
	"runtime"
	"sort"
)

// Version is the host's own release string, independent of whatever
// fabric firmware it happens to be paired with.
const Version = "0.1.0"

// compiledFeatures tracks build-time feature flags via init() registration.
var compiledFeatures []string

func printFeatures() {
	fmt.Printf("zeST host %s\n", Version)
	fmt.Printf("  Go version: %s\n", runtime.Version())
	fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Println()
	fmt.Println("Compiled features:")

	sort.Strings(compiledFeatures)
	for _, f := range compiledFeatures {
		fmt.Printf("  %s\n", f)
	}
	if len(compiledFeatures) == 0 {
		fmt.Println("  (none)")
	}
}

func init() {
	compiledFeatures = append(compiledFeatures,
		"acsi-transport", "gemdos-redirector", "floppy-engine", "control-socket", "metrics")
}
