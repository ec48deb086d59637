package main

import "skuflow/cmd"

func main() {
	cmd.Execute()
}
