// The main package for the scraperd executable.
package main

import "github.com/JakeFAU/ai-news-scraper/cmd"

func main() {
	cmd.Execute()
}
