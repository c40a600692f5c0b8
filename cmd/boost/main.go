// Package main provides the boost CLI: training, prediction and model dumps
// for the multi-device gradient boosting engine.
package main

func main() {
	Execute()
}
