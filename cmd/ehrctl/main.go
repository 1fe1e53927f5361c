// Command ehrctl queries a running ehrchain node.
package main

import "ehrchain/ctl/cmd"

func main() {
	cmd.Execute()
}
