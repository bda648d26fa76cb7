// Command fwimage packs a raw firmware payload and a version into the
// on-disk staged-image format internal/pending.BuildImage produces, ready
// to be written into a device's staging flash region.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/pending"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

func main() {
	in := flag.String("in", "", "Path to the raw firmware payload")
	out := flag.String("out", "", "Path to write the staged image to")
	ver := flag.String("version", "", "Firmware version as major.minor.patch.build (e.g. 1.2.3.4)")
	flag.Parse()

	if *in == "" || *out == "" || *ver == "" {
		fmt.Fprintln(os.Stderr, "usage: fwimage -in payload.bin -out staged.img -version 1.2.3.4")
		os.Exit(2)
	}

	v, err := parseVersion(*ver)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fwimage:", err)
		os.Exit(1)
	}

	payload, err := os.ReadFile(*in)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fwimage: read payload:", err)
		os.Exit(1)
	}

	image := pending.BuildImage(v, payload)
	if err := os.WriteFile(*out, image, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "fwimage: write image:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s: %d bytes (payload %d bytes, version %s)\n", *out, len(image), len(payload), *ver)
}

func parseVersion(s string) (wire.Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return wire.Version{}, fmt.Errorf("version must be major.minor.patch.build, got %q", s)
	}
	major, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return wire.Version{}, fmt.Errorf("invalid major: %w", err)
	}
	minor, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return wire.Version{}, fmt.Errorf("invalid minor: %w", err)
	}
	patch, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return wire.Version{}, fmt.Errorf("invalid patch: %w", err)
	}
	build, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return wire.Version{}, fmt.Errorf("invalid build: %w", err)
	}
	return wire.Version{Major: byte(major), Minor: byte(minor), Patch: uint16(patch), Build: uint32(build)}, nil
}
