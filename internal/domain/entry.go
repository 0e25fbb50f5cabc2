package domain

// Entry — строка системного crontab, как её видит адаптер.
//
// Строки не имеют собственного идентификатора: все операции
// адаптера ищут их по тегу Name. Строки без тега имеют пустой Name.
type Entry struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Command    string `json:"command"`
	Enabled    bool   `json:"enabled"`
}
