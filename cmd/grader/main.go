package main

import "github.com/vietddude/grader/internal/cli"

func main() {
	cli.Execute()
}
