package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when a streaming subscriber goes away
// before its channel is closed (e.g., a websocket client that disconnects
// mid-stream).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
