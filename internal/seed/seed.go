// Package seed builds the first-boot configuration disk ("seed image")
// handed to a fresh VM as a virtual optical device. The image is a
// minimal ISO 9660 filesystem carrying two files, meta-data and
// user-data, following the NoCloud datasource convention.
//
// Building the ISO 9660 layout is hand-rolled rather than pulled from
// a library: no such writer exists anywhere in this module's
// dependency pack, and the specification calls this out explicitly as
// a small binary format worth implementing directly.
package seed

import (
	"fmt"
	"os"
	"time"

	"github.com/carapaceos/carapaced/internal/carapace"
)

// VolumeLabel is the required ISO 9660 volume identifier. The guest's
// first-boot agent looks for a volume with exactly this label.
const VolumeLabel = "CIDATA"

// ReadySentinel is the literal token the first-boot runcmd writes to
// the guest's first serial device, used as a secondary readiness
// signal alongside the TCP+shell probe.
const ReadySentinel = "CARAPACEOS_READY"

// DefaultHostname is used when BuildOptions.Hostname is empty.
const DefaultHostname = "carapaceos"

// BuildOptions configures Build.
type BuildOptions struct {
	// AuthorizedKey is the OpenSSH public key line injected into the
	// guest's authorized_keys. Required.
	AuthorizedKey string

	// OutputPath is where the ISO image is written. Required.
	OutputPath string

	// Hostname defaults to DefaultHostname when empty.
	Hostname string

	// InstanceID defaults to a timestamp-derived value when empty.
	InstanceID string

	// ExtraCommands are appended, in order, to the first-boot runcmd
	// list after the readiness sentinel write. Each is shell-quoted.
	ExtraCommands []string
}

// Build assembles a seed ISO at opts.OutputPath. The meta-data and
// user-data contents are deterministic given its inputs (beyond the
// default instance ID, which is timestamp-derived); the volume and
// directory-record timestamps are taken from the current time, so two
// builds are not byte-identical. There is no internal error recovery:
// I/O failures are returned to the caller as-is.
func Build(opts BuildOptions) error {
	if opts.AuthorizedKey == "" {
		return fmt.Errorf("seed: authorized public key is required: %w", carapace.ErrUsage)
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("seed: output path is required: %w", carapace.ErrUsage)
	}

	hostname := opts.Hostname
	if hostname == "" {
		hostname = DefaultHostname
	}
	instanceID := opts.InstanceID
	if instanceID == "" {
		instanceID = defaultInstanceID()
	}

	metaData := renderMetaData(instanceID, hostname)
	userData := renderUserData(opts.AuthorizedKey, opts.ExtraCommands)

	f, err := os.Create(opts.OutputPath)
	if err != nil {
		return fmt.Errorf("seed: create output: %w", err)
	}
	defer f.Close()

	img := image{
		volumeLabel: VolumeLabel,
		files: []file{
			{identifier: "METADAT.;1", content: metaData},
			{identifier: "USERDAT.;1", content: userData},
		},
	}

	if err := img.writeTo(f); err != nil {
		return fmt.Errorf("seed: write iso: %w", err)
	}
	return nil
}

// defaultInstanceID derives a unique-enough identifier from the
// current time, formatted so two calls in the same process at
// different millisecond timestamps never collide.
func defaultInstanceID() string {
	return fmt.Sprintf("iid-%x", time.Now().UnixNano())
}
