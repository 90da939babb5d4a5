// Command jobsync keeps a local job store in step with the remote job service.
package main

func main() {
	Execute()
}
