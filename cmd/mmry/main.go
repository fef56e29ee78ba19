package main

import (
	"context"

	"github.com/mmry-org/mmry-plugins/cmd/mmry/commands"
	"github.com/mmry-org/mmry-plugins/lib/osutil"
)

func main() {
	ctx, stop := osutil.SignalContext(context.Background())
	defer stop()
	commands.ExecuteContext(ctx)
}
