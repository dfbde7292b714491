/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "tradebot/cmd"

func main() {
	cmd.Execute()
}
