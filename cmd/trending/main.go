package main

import (
	"fmt"
	"os"
)

// @title Trending API
// @version 1.0
// @description 热度评分引擎：浏览记录、定期重算与尾部淘汰
// @BasePath /
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
