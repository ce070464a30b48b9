package session

import "io"

// stream 把 shell 的输出转成数据块通道，使等待可以被计时器打断
// SSH channel 上的 Read 本身无法中断
type stream struct {
	chunks chan []byte
	err    error // chunks 关闭后有效
}

func newStream(r io.Reader, size int) *stream {
	if size <= 0 {
		size = 4096
	}
	s := &stream{chunks: make(chan []byte, 256)}
	go func() {
		defer close(s.chunks)
		for {
			buf := make([]byte, size)
			n, err := r.Read(buf)
			if n > 0 {
				s.chunks <- buf[:n]
			}
			if err != nil {
				s.err = err
				return
			}
		}
	}()
	return s
}

// drain 丢弃之前交互遗留的数据，流已结束时返回 false
func (s *stream) drain() bool {
	for {
		select {
		case _, ok := <-s.chunks:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}
