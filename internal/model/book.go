package model

// Book は蔵書を表す。
// 蔵書の登録・更新は管理画面側の責務で、このサービスは参照のみ行う。
type Book struct {
	ID              string
	Title           string
	Author          string
	Publisher       string
	PublicationYear int
	CallNo          string
	Language        string
	DocType         string
}
