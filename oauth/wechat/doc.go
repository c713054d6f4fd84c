// Package wechat is an authcore.OAuthProvider for WeChat web login.
//
// Exchange trades an authorization code for the user's openid through the
// sns/oauth2/access_token endpoint, then fetches nickname and avatar from
// sns/userinfo. A userinfo failure is not fatal: the openid alone is a
// usable identity.
package wechat
