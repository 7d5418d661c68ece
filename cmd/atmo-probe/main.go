// Command atmo-probe measures video files before upload: native dimensions
// for the record's aspectRatio and a first-frame webp thumbnail.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/atmopics/share/common/probe"
)

func main() {
	if err := newRootCmd(nil).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, probe.ErrMetadataLoadFailed) || errors.Is(err, probe.ErrThumbnailGenerationFailed) {
			fmt.Fprintln(os.Stderr, "The file could not be decoded. Try again, or pick a different video.")
		}
		os.Exit(1)
	}
}
