package utils

import "log"

// ConsumeChannel drains c so the producer goroutine never blocks after the consumer returned early
func ConsumeChannel[T any](c chan T) {
	defer func() {
		err := recover()
		if err == nil {
			return
		}
		log.Println("ERROR|DRAIN|CHANNEL", err)
	}()
	for range c {
	}
}
