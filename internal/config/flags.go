package config

import "github.com/spf13/pflag"

// Flags holds the command-line overrides a MIDInet binary accepts,
// mirroring the teacher's cmd/direwolf flag surface (one *pflag.FlagSet,
// pflag.StringP/IntP/BoolP per option, a leading "-c/--config-file"
// counterpart). Unset flags keep their File value: the pflag defaults are
// zero values, and Apply copies a flag onto File only when fs reports it
// Changed, so a caller need not check Changed itself.
type Flags struct {
	ConfigFile   *string
	HostID       *int
	HostName     *string
	MidiDevice   *string
	AutoFailover *bool
	LogLevel     *string
	LogDir       *string
}

// RegisterFlags declares MIDInet's command-line flags on fs and returns
// the bound Flags. Call fs.Parse(os.Args[1:]) before Apply.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	return &Flags{
		ConfigFile:   fs.StringP("config-file", "c", "midinet.yaml", "Configuration file name."),
		HostID:       fs.IntP("host-id", "i", 0, "Override host.id from the config file."),
		HostName:     fs.StringP("host-name", "n", "", "Override host.name from the config file."),
		MidiDevice:   fs.StringP("midi-device", "m", "", `Override midi.device ("auto", "auto:<name>", or an explicit device id).`),
		AutoFailover: fs.BoolP("auto-failover", "a", false, "Override failover.auto_enabled."),
		LogLevel:     fs.StringP("log-level", "d", "", "Log level: debug, info, warn, error."),
		LogDir:       fs.StringP("log-dir", "l", "", "Directory for daily-rotating log archive files."),
	}
}

// Apply overlays any flag the caller actually set (pflag.Changed) onto
// f, returning f for chaining. Flags left at their zero value never
// override a File value that was explicitly configured.
func (fl *Flags) Apply(fs *pflag.FlagSet, f *File) *File {
	if fs.Changed("host-id") {
		f.Host.ID = uint16(*fl.HostID)
	}
	if fs.Changed("host-name") {
		f.Host.Name = *fl.HostName
	}
	if fs.Changed("midi-device") {
		f.Midi.Device = *fl.MidiDevice
	}
	if fs.Changed("auto-failover") {
		f.Failover.AutoEnabled = *fl.AutoFailover
	}
	return f
}
