// Package crawler drives a whole catalog crawl: categories in order, their
// listing pages, every product on each page, and a bounded whole-run restart
// when a pass faults.
package crawler
