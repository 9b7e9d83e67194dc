// Package all registers all shell command providers.
package all

import (
	_ "github.com/robotalks/mculink/pkg/cli/cmds/device"
	_ "github.com/robotalks/mculink/pkg/cli/cmds/transfer"
)
