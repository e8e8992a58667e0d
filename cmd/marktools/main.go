// Command marktools searches, prices and sells pre-solved task workflows.
package main

func main() {
	Execute()
}
