// Command ocr detects and recognizes text in images and PDFs.
//
// Build information is injected with
//
//	-ldflags "-X github.com/MeKo-Tech/ocrlite/internal/version.Version=..."
package main

import "github.com/MeKo-Tech/ocrlite/cmd/ocr/cmd"

func main() {
	cmd.Execute()
}
