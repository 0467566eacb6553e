package history

type MessageRecord struct {
	ID        uint   `gorm:"primaryKey"`
	MessageID string `gorm:"uniqueIndex"`
	Text      string
	Direction string
	Remote    string
	Ordinal   uint64
	CreatedAt int64
}

type PeerRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Address   string `gorm:"uniqueIndex"`
	Name      string
	FirstSeen int64
	LastSeen  int64
	Sightings int
}
