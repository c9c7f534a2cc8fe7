package main

// Provider blank imports — each import activates a self-registering provider.
// Add new providers here as they are implemented.

import (
	_ "github.com/loomhq/loom/internal/provider/localstore"
	_ "github.com/loomhq/loom/internal/provider/remotesync"
)
