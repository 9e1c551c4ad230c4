// Package main provides the entry point for the dbbench-console CLI.
package main

import "github.com/yzsind/dbbench/cmd"

func main() {
	cmd.Execute()
}
