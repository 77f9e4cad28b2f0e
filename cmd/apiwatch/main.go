// Command apiwatch tracks API quota usage.
package main

func main() {
	Execute()
}
