// Command cart manages the GoMarket shopping cart from the command line.
package main

import "github.com/mesh-intelligence/gomarket/internal/cli"

func main() {
	cli.Execute()
}
