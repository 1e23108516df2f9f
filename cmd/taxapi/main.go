package main

import "github.com/taxdesk/taxdesk/cmd/taxapi/cmd"

func main() {
	cmd.Execute()
}
