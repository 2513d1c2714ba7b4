package main

func main() {
	runner := NewApplicationRunner()
	runner.Run()
}
