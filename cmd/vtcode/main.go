// Command vtcode is the terminal coding agent's CLI entrypoint.
package main

func main() {
	Execute()
}
