package app

import (
	"log"
	"mime"
)

func init() {
	// Proof attachments are mostly scans; make sure the common types
	// resolve even on stripped-down base images.
	ensureMimeType(".pdf", "application/pdf")
	ensureMimeType(".webp", "image/webp")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: failed to register MIME type for %s: %v", ext, err)
	}
}
