package util

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// CloseResource closes c, logging rather than returning any failure.
// For use in defers on resources whose close error carries no information, e.g. read-only files.
func CloseResource(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.WithError(err).Warnf("failed to close %s cleanly", name)
	}
}
