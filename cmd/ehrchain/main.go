// Command ehrchain runs the EHR ledger node and its offline maintenance tools.
package main

func main() {
	Execute()
}
