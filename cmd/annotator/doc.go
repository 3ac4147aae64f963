// Command annotator serves video clips to human annotators, stores their
// bounding-box annotations and scores validation submissions.
package main
