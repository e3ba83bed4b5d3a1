package main

import "github.com/apexlog/trackmap-service-go/cmd"

func main() {
	cmd.Execute()
}
