package cli

import "github.com/alecthomas/kong"

type CLI struct {
	Run     Run              `kong:"cmd,help='Run sync engine.'"`
	Health  Health           `kong:"cmd,help='Check engine health via metrics endpoint.'"`
	Version kong.VersionFlag `kong:"help='Print version.',short='v'"`
}
