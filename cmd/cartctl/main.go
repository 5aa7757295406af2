// Command cartctl manages a local cart the way a storefront client does: the cart is restored
// from storage at start, each command applies one action, and the result is written back.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "cartctl:", err)
		stop()
		os.Exit(1)
	}
}
