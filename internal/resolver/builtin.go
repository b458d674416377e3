package resolver

import "fmt"

// BuiltinOptions carries the collaborators shared by the built-in resolvers.
type BuiltinOptions struct {
	// Pinger sends ICMP echo requests; defaults to NewICMPPinger().
	Pinger Pinger

	// Runner executes external tools; defaults to OSRunner.
	Runner CommandRunner

	// Reports stores traceroute reports; nil disables them.
	Reports ReportWriter
}

// RegisterBuiltins registers every resolver shipped with the collector.
// It is the single place where new resolver types are added.
func RegisterBuiltins(reg *Registry, opts BuiltinOptions) error {
	if opts.Pinger == nil {
		opts.Pinger = NewICMPPinger()
	}
	if opts.Runner == nil {
		opts.Runner = OSRunner{}
	}

	builtins := []struct {
		id          string
		constructor Constructor
	}{
		{NetworkID, newNetworkConstructor(opts.Pinger)},
		{TracerouteID, newTracerouteConstructor(opts.Runner, opts.Reports)},
		{CRCONID, newCRCONConstructor},
	}
	for _, b := range builtins {
		if err := reg.Register(b.id, b.constructor); err != nil {
			return fmt.Errorf("registering built-in resolvers: %w", err)
		}
	}
	return nil
}
