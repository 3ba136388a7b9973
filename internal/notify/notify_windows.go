//go:build windows

package notify

import toast "git.sr.ht/~jackmordaunt/go-toast/v2"

func pushNotification(title, body string) error {
	n := toast.Notification{
		AppID: appID,
		Title: title,
		Body:  body,
	}
	return n.Push()
}
