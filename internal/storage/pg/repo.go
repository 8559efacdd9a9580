package pg

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RxPacket 一条接收记录
type RxPacket struct {
	DeviceSN   string
	Kind       string // peer_data | peer_message
	Payload    []byte
	RSSI       *int16
	SNR        *int16
	ReceivedAt time.Time
}

// TxRecord 一次发送的结果
type TxRecord struct {
	MsgID      string
	DeviceSN   string
	Payload    []byte
	Success    bool
	Attempts   int
	ErrMsg     *string
	DurationMs int32
}

// Repository 射频收发流水的写入端
type Repository struct {
	Pool *pgxpool.Pool
}

// InsertRxPacket 写入接收记录，返回记录 ID
func (r *Repository) InsertRxPacket(ctx context.Context, p RxPacket) (int64, error) {
	const q = `INSERT INTO rx_packets (device_sn, kind, payload, rssi, snr, received_at)
               VALUES ($1,$2,$3,$4,$5,$6)
               RETURNING id`
	at := p.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	var id int64
	err := r.Pool.QueryRow(ctx, q, p.DeviceSN, p.Kind, p.Payload, p.RSSI, p.SNR, at).Scan(&id)
	return id, err
}

// InsertTxLog 写入发送流水；msg_id 重复时覆盖为最近一次结果
func (r *Repository) InsertTxLog(ctx context.Context, t TxRecord) error {
	const q = `INSERT INTO tx_log (msg_id, device_sn, payload, success, attempts, error, duration_ms, created_at)
               VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
               ON CONFLICT (msg_id)
               DO UPDATE SET success=EXCLUDED.success, attempts=EXCLUDED.attempts,
                             error=EXCLUDED.error, duration_ms=EXCLUDED.duration_ms, created_at=NOW()`
	_, err := r.Pool.Exec(ctx, q, t.MsgID, t.DeviceSN, t.Payload, t.Success, t.Attempts, t.ErrMsg, t.DurationMs)
	return err
}

// InsertRadioConfig 记录一次参数下发，config 以 JSON 存储
func (r *Repository) InsertRadioConfig(ctx context.Context, deviceSN string, source string, config any) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return err
	}
	const q = `INSERT INTO radio_configs (device_sn, source, config, applied_at)
               VALUES ($1,$2,$3,NOW())`
	_, err = r.Pool.Exec(ctx, q, deviceSN, source, raw)
	return err
}

// PruneRxPackets 删除早于 before 的接收记录
func (r *Repository) PruneRxPackets(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM rx_packets WHERE received_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
