package serialport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// Config 串口参数
type Config struct {
	Device      string        `mapstructure:"device"`
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// FlushOnOpen 打开后丢弃设备残留输出
	FlushOnOpen bool `mapstructure:"flush_on_open"`
}

// Port go.bug.st/serial.Port 的最小子集，便于测试替换
type Port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
}

// Link 一条独占的串口链路
type Link struct {
	port   Port
	name   string
	logger *zap.Logger

	wmu    sync.Mutex
	closed chan struct{}
	once   sync.Once
}

// Open 以 8N1 打开串口并设置读超时，读超时让读循环可以感知 ctx 取消
func Open(cfg Config, logger *zap.Logger) (*Link, error) {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 115200
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Device, err)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Device, err)
	}

	l := NewLink(p, cfg.Device, logger)
	if cfg.FlushOnOpen {
		if err := l.Flush(); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	l.logger.Info("serial port opened",
		zap.String("device", cfg.Device),
		zap.Int("baud_rate", cfg.BaudRate),
		zap.Duration("read_timeout", cfg.ReadTimeout))
	return l, nil
}

// NewLink 包装一个已打开的端口
func NewLink(p Port, name string, logger *zap.Logger) *Link {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Link{port: p, name: name, logger: logger, closed: make(chan struct{})}
}

// Name 设备路径
func (l *Link) Name() string { return l.name }

// Write 写入完整字节序列；短写会继续写剩余部分
func (l *Link) Write(p []byte) (int, error) {
	l.wmu.Lock()
	defer l.wmu.Unlock()

	written := 0
	for written < len(p) {
		n, err := l.port.Write(p[written:])
		written += n
		if err != nil {
			if isTransient(err) {
				time.Sleep(time.Millisecond)
				continue
			}
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// Flush 丢弃输入缓冲中的残留字节
func (l *Link) Flush() error {
	if err := l.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("flush serial %s: %w", l.name, err)
	}
	l.logger.Debug("serial input flushed", zap.String("device", l.name))
	return nil
}

// Pump 读循环：把收到的字节交给 sink，直到 ctx 取消或端口出现不可恢复的错误。
// 读超时（0 字节）与 EINTR/EAGAIN 视为暂时状态，继续读。
func (l *Link) Pump(ctx context.Context, sink io.Writer) error {
	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.closed:
			return nil
		default:
		}

		n, err := l.port.Read(buf)
		if n > 0 {
			_, _ = sink.Write(buf[:n])
		}
		if err == nil {
			continue
		}
		if isTransient(err) {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		select {
		case <-l.closed:
			return nil
		default:
		}
		if errors.Is(err, io.EOF) && ctx.Err() != nil {
			return nil
		}
		l.logger.Error("serial read failed", zap.String("device", l.name), zap.Error(err))
		return fmt.Errorf("read serial %s: %w", l.name, err)
	}
}

// Close 关闭端口，Pump 随之退出
func (l *Link) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closed)
		err = l.port.Close()
	})
	return err
}

func isTransient(err error) bool {
	return errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}
