// Command songforge manages the karaoke video pipeline: discovering songs,
// driving them through download, separation, transcription, and rendering,
// and inspecting the queue.
package main
