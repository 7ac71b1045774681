package main

import "github.com/liszzmword/ai-data-analyst/cmd"

func main() {
	cmd.Execute()
}
