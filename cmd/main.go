package main

import (
	cmd "github.com/nrivara/folio/cmd/folio"
)

func main() {
	cmd.Execute()
}
