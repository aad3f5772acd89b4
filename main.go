package main

import (
	collaboard "github.com/collaboard/collaboard/app"
)

func main() {
	app := collaboard.New(nil, nil)
	app.Start()
}
