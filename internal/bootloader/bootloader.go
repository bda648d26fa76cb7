// Package bootloader implements the validate-and-copy sequence described in
// SPEC_FULL.md §4.10: verify a staged image, copy it into the application
// region in fixed-size chunks with read-back verification, erase the
// staging header so a completed copy is not repeated on the next boot,
// then hand control to an injected Jump capability.
//
// The control transfer itself — reprogramming the vector table offset and
// branching into the application's reset handler — is outside what a Go
// program can express on a microcontroller, so it is modeled as an injected
// function this package calls exactly once, on success, and never invokes
// itself.
package bootloader

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/pending"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

// chunkSize is the program-and-verify granularity used while copying the
// staged image into the application region.
const chunkSize = 1024

// ErrNoPendingImage is returned by Run when the staging region holds no
// validated pending image.
var ErrNoPendingImage = errors.New("bootloader: no valid pending image staged")

// ErrVerifyFailed is returned by Run when a copied chunk's read-back does
// not match what was written.
var ErrVerifyFailed = errors.New("bootloader: chunk read-back mismatch")

// Flash is the capability this package needs over the two flash regions
// involved: the staging area it reads and erases, and the application area
// it writes and reads back.
type Flash interface {
	ReadAt(offset uint32, buf []byte) error
	Program(addr uint32, data []byte) error
	Erase(addr uint32) error
}

// Config names the addresses and injected capabilities Run needs.
type Config struct {
	Flash Flash

	// StagingBase is the start of the staged-image region, in the format
	// internal/pending.Validate and internal/pending.BuildImage agree on.
	// Erasing the page at StagingBase is enough to invalidate the staged
	// image's length header. Run erases it only after the whole copy has been
	// verified; a reset mid-copy leaves the staged image valid, so the next
	// Run validates and copies it again from the start.
	StagingBase uint32

	// AppBase is where the validated payload is copied to.
	AppBase uint32
	// AppVectorTable is the address Jump is called with: the address of the
	// application's vector table, normally equal to AppBase.
	AppVectorTable uint32

	// Jump transfers control to the application. Never called except as
	// the last step of a successful Run.
	Jump func(vectorTableAddr uint32)
}

// Run validates the staged image, copies its payload into the application
// region, erases the staging header, and jumps. It returns before calling
// Jump only on error; ErrNoPendingImage means the staging region held
// nothing worth booting, any other error means the copy itself failed.
func Run(cfg Config) error {
	v, payload, ok, err := pending.Validate(cfg.Flash, cfg.StagingBase)
	if err != nil {
		return fmt.Errorf("bootloader: validate staged image: %w", err)
	}
	if !ok {
		return ErrNoPendingImage
	}

	if err := copyVerified(cfg.Flash, cfg.AppBase, payload); err != nil {
		return err
	}

	if err := cfg.Flash.Erase(cfg.StagingBase); err != nil {
		return fmt.Errorf("bootloader: erase staging header: %w", err)
	}

	_ = v // the validated version is only meaningful to the caller's logs
	if cfg.Jump != nil {
		cfg.Jump(cfg.AppVectorTable)
	}
	return nil
}

// copyVerified writes payload to flash starting at base in chunkSize
// pieces, reading each one back and comparing before moving to the next.
func copyVerified(flash Flash, base uint32, payload []byte) error {
	readback := make([]byte, chunkSize)
	for off := 0; off < len(payload); off += chunkSize {
		end := off + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[off:end]
		addr := base + uint32(off)

		if err := flash.Program(addr, chunk); err != nil {
			return fmt.Errorf("bootloader: program chunk at %#x: %w", addr, err)
		}
		buf := readback[:len(chunk)]
		if err := flash.ReadAt(addr, buf); err != nil {
			return fmt.Errorf("bootloader: read back chunk at %#x: %w", addr, err)
		}
		if !bytes.Equal(buf, chunk) {
			return fmt.Errorf("%w: at %#x", ErrVerifyFailed, addr)
		}
	}
	return nil
}

// VersionOf re-validates the staged image and returns only its embedded
// Version, for callers (e.g. a diagnostic CLI) that want to report what
// would be booted without running the full copy.
func VersionOf(flash Flash, stagingBase uint32) (wire.Version, bool, error) {
	v, _, ok, err := pending.Validate(flash, stagingBase)
	return v, ok, err
}
