package version

import (
	"fmt"
	"io"
	"runtime"
)

// Overridden at build time with
// -ldflags "-X github.com/okleinschmidt/pyadm/cmd/version.Version=v1.2.3 ...".
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// Template is the root --version output.
const Template = "pyadm {{.Version}}\n"

func PrintFullVersion(w io.Writer) {
	fmt.Fprintf(w, "Version:    %s\n", Version)
	fmt.Fprintf(w, "Git Commit: %s\n", Commit)
	fmt.Fprintf(w, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "Go Version: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
